package database

// Repositories groups every repository the ledger service needs,
// constructed once from a shared Client.
type Repositories struct {
	Events      *EventRepository
	Heads       *HeadRepository
	Checkpoints *CheckpointRepository
	Commitments *CommitmentRepository
}

// NewRepositories creates all repositories with the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Events:      NewEventRepository(client),
		Heads:       NewHeadRepository(client),
		Checkpoints: NewCheckpointRepository(client),
		Commitments: NewCommitmentRepository(client),
	}
}

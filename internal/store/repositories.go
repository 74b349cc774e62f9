package store

// Repositories holds all repository instances over a single Client.
type Repositories struct {
	Outbox      *OutboxRepository
	Chain       *ChainRepository
	Projections *ProjectionRepository
}

// NewRepositories creates all repositories with the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Outbox:      NewOutboxRepository(client),
		Chain:       NewChainRepository(client),
		Projections: NewProjectionRepository(client),
	}
}

package taskstore

// Config configures the task table this store reads and writes.
type Config struct {
	// Table is the task table name, optionally schema-qualified.
	Table string `yaml:"table" default:"tw_task"`
}

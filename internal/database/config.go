package database

type Config struct {
	FileName string `envconfig:"TEASER_DB_FILE" default:"teaser.db"`
}

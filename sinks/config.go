package sinks

// Destination selects an Applier implementation.
type Destination string

const (
	DestinationMongo   Destination = "mongodb"
	DestinationElastic Destination = "elasticsearch"
	DestinationKafka   Destination = "kafka"
)

type MongoConfig struct {
	ConnectString string
	Database      string
}

type ElasticConfig struct {
	Addresses []string `koanf:"addresses"`
	Username  string   `koanf:"username"`
	Password  string   `koanf:"password"`
	APIKey    string   `koanf:"api_key"`
	CloudID   string   `koanf:"cloud_id"`
}

type KafkaConfig struct {
	Brokers     []string `koanf:"brokers"`
	TopicPrefix string   `koanf:"topic_prefix"`
}

// Config holds the settings of every destination; only the selected one is
// read.
type Config struct {
	Destination Destination
	Mongo       MongoConfig
	Elastic     ElasticConfig
	Kafka       KafkaConfig
}

package clients

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultKafkaPort = 9092

// KafkaOptions selects the brokers, protocol version and security of a
// sarama client.
type KafkaOptions struct {
	Brokers     []string
	Version     string
	DialTimeout time.Duration

	TLS bool
	// SASLMechanism is empty or PLAIN
	SASLMechanism string
	Username      string
	Password      string
}

// ParseBrokers splits a comma-separated broker list, adding defaultPort to
// entries without one.
func ParseBrokers(list string, defaultPort int) []string {
	if defaultPort == 0 {
		defaultPort = defaultKafkaPort
	}
	var brokers []string
	for _, b := range strings.Split(list, ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(b); err != nil {
			b = net.JoinHostPort(b, strconv.Itoa(defaultPort))
		}
		brokers = append(brokers, b)
	}
	return brokers
}

// NewSaramaConfig builds and validates a sarama config for o. Consumer and
// producer errors are returned on their channels.
func NewSaramaConfig(o KafkaOptions) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = "nebula-extract"
	config.Consumer.Return.Errors = true
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	if o.Version != "" {
		v, err := sarama.ParseKafkaVersion(o.Version)
		if err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid kafka version")
		}
		config.Version = v
	}
	if o.DialTimeout > 0 {
		config.Net.DialTimeout = o.DialTimeout
	}

	if o.TLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch strings.ToUpper(o.SASLMechanism) {
	case "":
	case "PLAIN":
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = o.Username
		config.Net.SASL.Password = o.Password
	default:
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "unsupported SASL mechanism %q", o.SASLMechanism)
	}

	if err := config.Validate(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid kafka configuration")
	}
	return config, nil
}

package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	StockDeducted = "stock.deducted"
	StockAdjusted = "stock.adjusted"
	StockMigrated = "stock.migrated"
)

// StockEvent - уведомление об изменении остатка складской позиции
type StockEvent struct {
	Type            string    `json:"type"`
	InventoryItemID string    `json:"inventory_item_id"`
	IngredientID    string    `json:"ingredient_id"`
	LocationID      string    `json:"location_id"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	Quantity        float64   `json:"quantity"` // Со знаком, как в журнале движений
	StockAfter      float64   `json:"stock_after"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher отправляет события склада во внешнюю шину
type Publisher interface {
	Publish(ctx context.Context, event StockEvent) error
	Close() error
}

// KafkaPublisher пишет события в топик, ключ сообщения - ingredient_id,
// так что события одного ингредиента попадают в одну партицию по порядку.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic, username, password, caCert string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			Transport:    NewKafkaTransport(username, password, caCert),
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event StockEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать событие %s: %w", event.Type, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.IngredientID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("не удалось отправить событие %s в Kafka: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewKafkaTransport создает транспорт с поддержкой SASL/PLAIN и TLS (для Aiven)
func NewKafkaTransport(username, password, caCert string) *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}

	if username != "" && password != "" {
		transport.SASL = plain.Mechanism{
			Username: username,
			Password: password,
		}
		log.Info().Str("username", username).Msg("🔐 Kafka: SASL/PLAIN аутентификация включена")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM([]byte(caCert)); ok {
			tlsConfig.RootCAs = caCertPool
			log.Info().Msg("🔒 Kafka: TLS с CA сертификатом включен")
		} else {
			log.Warn().Msg("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}

	// SASL без TLS брокеры не принимают
	if transport.SASL != nil || caCert != "" {
		transport.TLS = tlsConfig
	}

	return transport
}

// ParseKafkaBrokers парсит строку с брокерами (через запятую)
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	brokerList := strings.Split(strings.ReplaceAll(brokers, " ", ""), ",")
	var result []string
	for _, broker := range brokerList {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// NoopPublisher используется, когда Kafka не настроена
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event StockEvent) error {
	log.Debug().Str("type", event.Type).Str("ingredient_id", event.IngredientID).Msg("Kafka не настроена, событие не отправлено")
	return nil
}

func (NoopPublisher) Close() error { return nil }

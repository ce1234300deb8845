package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

func TestNewKafkaConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{"defaults", KafkaConfig{Brokers: []string{"localhost:9092"}}, false},
		{"explicit version", KafkaConfig{Brokers: []string{"localhost:9092"}, Version: "3.6.0"}, false},
		{"invalid kafka version", KafkaConfig{Brokers: []string{"localhost:9092"}, Version: "invalid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kc, err := NewKafkaConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKafkaConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if kc.ClientID != "rice-letor" || !kc.Producer.Return.Successes || kc.Producer.RequiredAcks != sarama.WaitForAll {
				t.Errorf("NewKafkaConfig() = client %q, successes %v, acks %v",
					kc.ClientID, kc.Producer.Return.Successes, kc.Producer.RequiredAcks)
			}
		})
	}
}

func TestNewKafkaBus_NoBrokers(t *testing.T) {
	if _, err := NewKafkaBus(KafkaConfig{}); !apperrors.IsConfig(err) {
		t.Errorf("NewKafkaBus() error = %v, want config error", err)
	}
}

func TestKafkaBus_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != TypeResult || e.Key != "q7" {
			return fmt.Errorf("unexpected event %+v", e)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b := NewKafkaBusWithProducer(producer)
	if err := b.Publish(context.Background(), "letor.results", NewEvent(TypeResult, "run", "q7", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	err := b.Publish(context.Background(), "letor.results", NewEvent(TypeResult, "run", "q8", nil))
	if !apperrors.HasCode(err, apperrors.CodeBackend) {
		t.Errorf("Publish() error = %v, want backend error", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := b.Publish(context.Background(), "letor.results", Event{ID: "late"}); err == nil {
		t.Error("Publish() after Close() should return error")
	}
}

func TestKafkaBus_Interface(t *testing.T) {
	var _ Publisher = (*KafkaBus)(nil)
	var _ Bus = (*MemoryBus)(nil)
}

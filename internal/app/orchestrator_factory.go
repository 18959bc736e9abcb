package app

import (
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/settlement"
)

// createOrchestrator создаёт settlement orchestrator с или без Kafka
// в зависимости от наличия kafka producer.
func createOrchestrator(
	deps *Dependencies,
	kafkaProducer *kafka.Producer,
) settlement.Orchestrator {
	if kafkaProducer != nil {
		return settlement.NewOrchestratorWithKafka(
			deps.Products,
			deps.Orders,
			deps.Customers,
			deps.Intents,
			deps.Gateway,
			deps.Outbox,
			kafkaProducer,
			deps.Logger,
		)
	}

	return settlement.NewOrchestrator(
		deps.Products,
		deps.Orders,
		deps.Customers,
		deps.Intents,
		deps.Gateway,
		deps.Outbox,
		deps.Logger,
	)
}

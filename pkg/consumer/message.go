package consumer

import (
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/quay/pkg/models"
)

// parseMessage decodes a raw stream entry into an envelope and payload.
// Errors here are permanent: the bytes will never parse differently on a
// retry, so callers dead-letter immediately instead of redelivering.
func parseMessage(data []byte) (*models.QueueMessage, *models.NotificationPayload, error) {
	var message models.QueueMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	if message.TenantID == "" {
		return &message, nil, fmt.Errorf("envelope missing tenant_id")
	}
	if len(message.Payload) == 0 {
		return &message, nil, fmt.Errorf("envelope missing payload")
	}

	var payload models.NotificationPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return &message, nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := payload.Normalize(); err != nil {
		return &message, nil, err
	}

	return &message, &payload, nil
}

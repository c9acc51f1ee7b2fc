package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

func TestRunRejectsMemoryQueue(t *testing.T) {
	err := run(&appconfig.Config{UseMemoryQueue: true}, logging.New("error"))
	assert.ErrorContains(t, err, "TURN_QUEUE_URL")
}

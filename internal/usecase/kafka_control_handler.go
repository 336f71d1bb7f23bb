package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	drepo "TickPilot/internal/domain/repository"
	pkgkafka "TickPilot/pkg/kafka"
	applogger "TickPilot/pkg/logger"
)

const (
	CommandKillSwitch     = "kill_switch"
	CommandResume         = "resume"
	CommandRegimeOverride = "regime_override"
)

// ControlCommand is an operator command published to the control topic.
type ControlCommand struct {
	Command string `json:"command"`
	Reason  string `json:"reason,omitempty"`
	Regime  string `json:"regime,omitempty"`
}

// Controller is the part of the engine operator commands drive.
type Controller interface {
	ActivateKillSwitch(ctx context.Context, reason string) error
	DeactivateKillSwitch(ctx context.Context) error
	OverrideRegime(ctx context.Context, name string) error
}

// KafkaControlHandler applies operator commands read from Kafka.
type KafkaControlHandler struct {
	topic   string
	ctl     Controller
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewKafkaControlHandler(topic string, ctl Controller, metrics drepo.Metrics, l *applogger.Logger) *KafkaControlHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaControlHandler{topic: topic, ctl: ctl, metrics: metrics, l: l}
}

func (h *KafkaControlHandler) Topic() string { return h.topic }

// Handle decodes one command. Malformed or unknown commands are reported as
// errors so the consumer can route them to its DLQ.
func (h *KafkaControlHandler) Handle(ctx context.Context, b []byte) error {
	var cmd ControlCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("control_unmarshal")
		return err
	}
	h.l.Info("control command", applogger.String("command", cmd.Command), applogger.String("reason", cmd.Reason))

	var err error
	switch strings.ToLower(strings.TrimSpace(cmd.Command)) {
	case CommandKillSwitch:
		err = h.ctl.ActivateKillSwitch(ctx, cmd.Reason)
	case CommandResume:
		err = h.ctl.DeactivateKillSwitch(ctx)
	case CommandRegimeOverride:
		err = h.ctl.OverrideRegime(ctx, cmd.Regime)
	default:
		err = fmt.Errorf("unknown control command %q", cmd.Command)
	}
	if err != nil {
		h.metrics.RecordError("control")
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaControlHandler)(nil)

package logging

import (
	"context"

	notevault "github.com/MrEthical07/notevault"
	"go.uber.org/zap"
)

// AuditSink writes engine audit events to a zap logger. Failed and
// critical events are logged at warn level.
type AuditSink struct {
	log *zap.Logger
}

// NewAuditSink returns a sink writing to log under the "audit" name.
func NewAuditSink(log *zap.Logger) *AuditSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditSink{log: log.Named("audit")}
}

func (s *AuditSink) Emit(_ context.Context, ev notevault.AuditEvent) {
	fields := make([]zap.Field, 0, 9+len(ev.Metadata))
	fields = append(fields,
		zap.String("event", string(ev.Type)),
		zap.String("category", string(ev.Category)),
		zap.Bool("success", ev.Success),
		zap.Time("at", ev.Timestamp),
	)
	if ev.UserID != "" {
		fields = append(fields, zap.String("user_id", ev.UserID))
	}
	if ev.RequestID != "" {
		fields = append(fields, zap.String("request_id", ev.RequestID))
	}
	if ev.IP != "" {
		fields = append(fields, zap.String("ip", ev.IP))
	}
	if ev.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", ev.UserAgent))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error_code", ev.Error))
	}
	for k, v := range ev.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if ev.Success && !ev.Type.Critical() {
		s.log.Info("audit", fields...)
		return
	}
	s.log.Warn("audit", fields...)
}

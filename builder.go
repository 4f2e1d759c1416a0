package authflow

import (
	"errors"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Builder assembles a [Controller].
//
// Builder instances are intended to be configured during initialization and then discarded; a Builder can be built once.
type Builder struct {
	config Config

	authenticator Authenticator
	navigator     Navigator
	logger        *zap.Logger
	auditSink     AuditSink
	flowID        string

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; later With* calls adjust the replaced value.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAuthenticator sets the external authentication service. Required.
func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithNavigator sets the optional navigator told about the landing
// destination after authentication.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// A nil logger is replaced by zap.NewNop. The controller logs under the "authflow" name.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithFlowID overrides the generated flow identifier.
func (b *Builder) WithFlowID(id string) *Builder {
	b.flowID = id
	return b
}

// WithMetricsEnabled toggles the in-process counters read by [Controller.MetricsSnapshot].
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records Login and VerifyTOTP call latency into fixed
// buckets. Off by default.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a controller in
// StateAwaitingCredentials.
//
// Build returns [ErrAuthenticatorRequired] when no authenticator was set, or the first configuration error.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.authenticator == nil {
		return nil, ErrAuthenticatorRequired
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	id := b.flowID
	if id == "" {
		id = uuid.NewString()
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, sink)

	b.built = true

	return &Controller{
		cfg:           cfg,
		authenticator: b.authenticator,
		navigator:     b.navigator,
		logger:        logger.Named("authflow"),
		audit:         dispatcher,
		metrics:       NewMetrics(cfg.Metrics),
		id:            id,
		state:         StateAwaitingCredentials,
	}, nil
}

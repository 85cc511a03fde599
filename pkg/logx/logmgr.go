//nolint:gochecknoglobals
package logx

import (
	"context"
	"log"
)

type ServiceContext struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// Logger - logger interface.
type Logger interface {
	// LogInfo logs a message at Info level.
	LogInfo(ctx context.Context, msg string)
	// LogDebug logs a message at Debug level.
	LogDebug(ctx context.Context, msg string)
	// LogWarning logs a message at Warning level.
	LogWarning(ctx context.Context, msg string, errs ...error)
	// LogError logs a message at Error level.
	LogError(ctx context.Context, msg string, errs ...error)
	// LogPanic logs a message at Panic level then panics.
	LogPanic(ctx context.Context, msg string, errs ...error)
	// LogFatal logs a message at Fatal Level.
	// The logger then calls os.Exit(1), even if logging at FatalLevel is
	// disabled.
	LogFatal(ctx context.Context, msg string, errs ...error)

	GetLogger() interface{}
}

var logger Logger

// DefaultLogger - Logger implementation backed by the standard log package.
type DefaultLogger struct{}

// GetLogger - returns an instance of the Logger.
// If called before SetupLogger a DefaultLogger will be returned.
func GetLogger() Logger {
	if logger == nil {
		return &DefaultLogger{}
	}

	return logger
}

// SetLogger - install a Logger, e.g. a test double. Passing nil restores the DefaultLogger.
func SetLogger(l Logger) {
	logger = l
}

type fieldsKey struct{}

type contextFields struct {
	txId     string
	scopeKey string
}

// WithTransactionId - returns a context whose log lines carry the given transaction id.
func WithTransactionId(ctx context.Context, txId string) context.Context {
	f := fieldsFromContext(ctx)
	f.txId = txId

	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithScopeKey - returns a context whose log lines carry the given ambient scope key.
func WithScopeKey(ctx context.Context, scopeKey string) context.Context {
	f := fieldsFromContext(ctx)
	f.scopeKey = scopeKey

	return context.WithValue(ctx, fieldsKey{}, f)
}

func fieldsFromContext(ctx context.Context) contextFields {
	if ctx == nil {
		return contextFields{}
	}

	f, _ := ctx.Value(fieldsKey{}).(contextFields)

	return f
}

func (f contextFields) suffix() string {
	s := ""
	if f.txId != "" {
		s += " txId=" + f.txId
	}
	if f.scopeKey != "" {
		s += " scopeKey=" + f.scopeKey
	}

	return s
}

// LogInfo.
func (nl *DefaultLogger) LogInfo(ctx context.Context, msg string) {
	log.Println("INFO " + msg + fieldsFromContext(ctx).suffix())
}

// LogDebug.
func (nl *DefaultLogger) LogDebug(ctx context.Context, msg string) {
	log.Println("DEBUG " + msg + fieldsFromContext(ctx).suffix())
}

// LogWarning.
func (nl *DefaultLogger) LogWarning(ctx context.Context, msg string, errs ...error) {
	log.Println("WARN "+msg+fieldsFromContext(ctx).suffix(), errs)
}

// LogError.
func (nl *DefaultLogger) LogError(ctx context.Context, msg string, errs ...error) {
	log.Println("ERROR "+msg+fieldsFromContext(ctx).suffix(), errs)
}

// LogPanic.
func (nl *DefaultLogger) LogPanic(ctx context.Context, msg string, errs ...error) {
	log.Panicln("PANIC "+msg, errs)
}

// LogFatal.
func (nl *DefaultLogger) LogFatal(ctx context.Context, msg string, errs ...error) {
	log.Fatalln("FATAL "+msg, errs)
}

// GetLogger noop.
func (nl *DefaultLogger) GetLogger() interface{} { return nil }

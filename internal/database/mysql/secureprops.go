package mysql

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/datakite/mysqlcdc/internal/config"
	"github.com/datakite/mysqlcdc/internal/errs"
	"github.com/datakite/mysqlcdc/internal/logger"
)

// Process-wide property names the TLS stack reads key material from.
const (
	PropSSLKeystore           = "MYSQL_SSL_KEYSTORE"
	PropSSLKeystorePassword   = "MYSQL_SSL_KEYSTORE_PASSWORD"
	PropSSLTruststore         = "MYSQL_SSL_TRUSTSTORE"
	PropSSLTruststorePassword = "MYSQL_SSL_TRUSTSTORE_PASSWORD"
)

// PropertyStore is the narrow port to process-wide key/value state.
// Business logic never touches ambient globals directly; everything goes
// through this interface so tests can substitute an in-memory fake.
type PropertyStore interface {
	Lookup(name string) (string, bool)
	Set(name, value string) error
	Unset(name string) error
}

// EnvStore implements PropertyStore on the process environment.
type EnvStore struct{}

func (EnvStore) Lookup(name string) (string, bool) { return os.LookupEnv(name) }
func (EnvStore) Set(name, value string) error      { return os.Setenv(name, value) }
func (EnvStore) Unset(name string) error           { return os.Unsetenv(name) }

// override records the state of one property before this scope touched it,
// so Restore can put back exactly what was there.
type override struct {
	prior   string
	present bool
}

// propertyBinding ties a process-wide property to the configuration field
// it is fed from. Passwords never appear in conflict error messages.
type propertyBinding struct {
	property    string
	field       string
	valueInErrs bool
}

var securePropertyBindings = []propertyBinding{
	{PropSSLKeystore, config.FieldSSLKeystore, true},
	{PropSSLKeystorePassword, config.FieldSSLKeystorePassword, false},
	{PropSSLTruststore, config.FieldSSLTruststore, true},
	{PropSSLTruststorePassword, config.FieldSSLTruststorePassword, false},
}

// SecurePropertyScope applies the TLS-related process-wide properties for
// the lifetime of one connection context and restores them on release.
// Every applied override has a matching restoration entry; the table is
// cleared only after restoration completes.
type SecurePropertyScope struct {
	store PropertyStore
	log   *logger.Logger

	mu        sync.Mutex
	overrides map[string]override
}

// NewSecurePropertyScope builds a scope over the given store. A nil store
// selects the process environment; a nil log selects the global logger.
func NewSecurePropertyScope(store PropertyStore, log *logger.Logger) *SecurePropertyScope {
	if store == nil {
		store = EnvStore{}
	}
	if log == nil {
		log = logger.Global()
	}
	return &SecurePropertyScope{
		store:     store,
		log:       log,
		overrides: make(map[string]override),
	}
}

// Apply pushes every configured secure property into the process-wide
// store. Absent configuration fields are skipped, a pre-existing identical
// value is left alone without a restoration entry, and a pre-existing
// different value fails fast with a config-conflict error: this scope must
// never silently clobber another component's TLS settings.
//
// Calling Apply again without an intervening Restore is safe: already
// applied values compare as identical and no-op.
func (s *SecurePropertyScope) Apply(cfg config.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range securePropertyBindings {
		if err := s.applyOne(cfg, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *SecurePropertyScope) applyOne(cfg config.Configuration, b propertyBinding) error {
	value, ok := cfg.Lookup(b.field)
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)

	existing, present := s.store.Lookup(b.property)
	if !present {
		if err := s.store.Set(b.property, value); err != nil {
			return errs.Wrap(errs.ErrKindUnknown, "setting property "+b.property, err)
		}
		s.overrides[b.property] = override{present: false}
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(existing), value) {
		// Identical value already in place, owned by someone else.
		// No restoration entry: Restore must not clear what we did not set.
		return nil
	}

	msg := fmt.Sprintf("property %q is already defined, but the configuration field %q defines a different value",
		b.property, b.field)
	if b.valueInErrs {
		msg = fmt.Sprintf("property %q is already defined as %q, but the configuration field %q defines a different value %q",
			b.property, existing, b.field, value)
	}
	return errs.New(errs.ErrKindConfigConflict, msg)
}

// Restore writes back the prior value of every recorded override, clearing
// properties that were absent before Apply, then empties the table. It is
// safe to call when nothing was applied.
func (s *SecurePropertyScope) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, o := range s.overrides {
		var err error
		if o.present {
			err = s.store.Set(name, o.prior)
		} else {
			err = s.store.Unset(name)
		}
		if err != nil {
			s.log.ErrorWith("failed to restore process-wide property", err,
				map[string]interface{}{"property": name})
		}
	}
	s.overrides = make(map[string]override)
}

package config

// Field names understood by the connector. The dotted spellings are an
// external contract: existing deployments reference them verbatim, so they
// must not be renamed.
const (
	// Source database coordinates and credentials.
	FieldHostname = "database.hostname"
	FieldPort     = "database.port"
	FieldUser     = "database.user"
	FieldPassword = "database.password"

	// TLS settings. FieldSSLMode takes one of: disabled, preferred,
	// required, verify_ca, verify_identity.
	FieldSSLMode               = "database.ssl.mode"
	FieldSSLKeystore           = "database.ssl.keystore"
	FieldSSLKeystorePassword   = "database.ssl.keystore.password"
	FieldSSLTruststore         = "database.ssl.truststore"
	FieldSSLTruststorePassword = "database.ssl.truststore.password"

	// Schema-history store settings. These belong to the history
	// collaborator and are stripped before deriving driver parameters.
	FieldHistoryStore  = "database.history"
	HistoryFieldPrefix = "database.history."

	// Failure handling. Accepted values: fail, warn, skip.
	FieldEventDeserializationFailureHandlingMode = "event.deserialization.failure.handling.mode"
	FieldInconsistentSchemaHandlingMode          = "inconsistent.schema.handling.mode"
)

// DriverFieldLegacyDatetime is the legacy date/time driver flag, addressed
// relative to the derived driver configuration (the "database." subset with
// the prefix stripped).
const DriverFieldLegacyDatetime = "useLegacyDatetimeCode"

// DefaultPort is the MySQL port assumed when FieldPort is absent.
const DefaultPort = 3306

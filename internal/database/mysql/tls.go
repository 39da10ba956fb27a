package mysql

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/datakite/mysqlcdc/internal/errs"
)

// resolveTLS translates the secure-connection mode and any key material
// published in the property store into the value of the driver's tls DSN
// parameter. Modes that need custom verification behaviour or client
// certificates register a named tls.Config with the driver and return
// that name.
func resolveTLS(mode SecureConnectionMode, host string, port int, store PropertyStore) (string, error) {
	switch mode {
	case SSLModeDisabled:
		return "false", nil
	case SSLModePreferred:
		return "preferred", nil
	}

	certs, err := clientCertificates(store)
	if err != nil {
		return "", err
	}

	switch mode {
	case SSLModeRequired:
		if len(certs) == 0 {
			// Encrypted, no server verification, no client certificate.
			return "skip-verify", nil
		}
		return registerTLSConfig(host, port, &tls.Config{
			Certificates:       certs,
			InsecureSkipVerify: true,
		})

	case SSLModeVerifyCA:
		roots, err := trustedRoots(store)
		if err != nil {
			return "", err
		}
		// Verify the server chain against the trusted roots but not the
		// hostname; Go only allows that split via VerifyPeerCertificate.
		return registerTLSConfig(host, port, &tls.Config{
			Certificates:          certs,
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: verifyAgainstRoots(roots),
		})

	case SSLModeVerifyIdentity:
		truststore, hasTruststore := store.Lookup(PropSSLTruststore)
		if !hasTruststore && len(certs) == 0 {
			// Full verification against the system roots.
			return "true", nil
		}
		cfg := &tls.Config{
			Certificates: certs,
			ServerName:   host,
		}
		if hasTruststore {
			roots, err := rootsFromFile(truststore)
			if err != nil {
				return "", err
			}
			cfg.RootCAs = roots
		}
		return registerTLSConfig(host, port, cfg)
	}

	return "", errs.New(errs.ErrKindInvalidInput, "unsupported ssl mode "+mode.String())
}

// clientCertificates loads the client certificate/key pair from the
// keystore property, when one is published. The keystore is a PEM bundle
// holding both the certificate and the private key.
func clientCertificates(store PropertyStore) ([]tls.Certificate, error) {
	path, ok := store.Lookup(PropSSLKeystore)
	if !ok || path == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(path, path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "loading client keystore "+path, err)
	}
	return []tls.Certificate{cert}, nil
}

// trustedRoots returns the CA pool for server verification: the truststore
// property when published, otherwise the system pool.
func trustedRoots(store PropertyStore) (*x509.CertPool, error) {
	if path, ok := store.Lookup(PropSSLTruststore); ok && path != "" {
		return rootsFromFile(path)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "loading system certificate pool", err)
	}
	return pool, nil
}

func rootsFromFile(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "reading truststore "+path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errs.New(errs.ErrKindInvalidInput, "truststore "+path+" contains no usable certificates")
	}
	return pool, nil
}

// verifyAgainstRoots checks the presented chain against roots without
// hostname verification.
func verifyAgainstRoots(roots *x509.CertPool) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errs.New(errs.ErrKindConnectionFailed, "server presented no certificate")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return errs.Wrap(errs.ErrKindConnectionFailed, "parsing server certificate", err)
			}
			certs = append(certs, cert)
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}

// registerTLSConfig registers cfg with the driver under a name scoped to
// the target server and returns the name for use as the tls DSN parameter.
// Re-registration under the same name replaces the previous configuration.
func registerTLSConfig(host string, port int, cfg *tls.Config) (string, error) {
	name := fmt.Sprintf("mysqlcdc-%s-%d", host, port)
	if err := gomysql.RegisterTLSConfig(name, cfg); err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "registering TLS configuration", err)
	}
	return name, nil
}

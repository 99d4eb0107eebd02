package middleware

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// errNoCerts — файл прочитан, но PEM-сертификатов в нём нет.
var errNoCerts = errors.New("в файле нет PEM-сертификатов")

// HTTPClientWithCA — HTTP-клиент, доверяющий системным CA и сертификатам из caCertPath.
// Используется для JWKS, readiness и Admin API Keycloak.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %w", caCertPath, errNoCerts)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// withTimeout возвращает копию client с другим таймаутом; nil — клиент по умолчанию.
func withTimeout(client *http.Client, timeout time.Duration) *http.Client {
	if client == nil {
		return &http.Client{Timeout: timeout}
	}
	c := *client
	c.Timeout = timeout
	return &c
}

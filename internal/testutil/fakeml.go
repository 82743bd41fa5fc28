package testutil

import (
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/pideploy/pideploy/internal/config"
)

// FakeManualLoggerSettings controls how FakeManualLogger answers.
type FakeManualLoggerSettings struct {
	Offline   bool
	DBOffline bool
	Username  string
}

// FakeManualLogger is a PI Manual Logger Web API served over TLS.
type FakeManualLogger struct {
	Server *httptest.Server

	mu       sync.Mutex
	settings FakeManualLoggerSettings
}

// NewFakeManualLogger starts a fake that answers as an online Manual Logger
// with a reachable database. It is closed when the test ends.
func NewFakeManualLogger(t testing.TB) *FakeManualLogger {
	t.Helper()

	f := &FakeManualLogger{settings: FakeManualLoggerSettings{Username: `CORP\piadmin`}}

	mux := http.NewServeMux()
	site := "/" + config.ManualLoggerSite
	mux.HandleFunc("GET "+site, f.handleHome)
	mux.HandleFunc("GET "+site+"/api/checkconnection", f.handleConnection)
	mux.HandleFunc("GET "+site+"/api/checkdbconnection", f.handleDBConnection)
	mux.HandleFunc("GET "+site+"/api/username", f.handleUsername)

	f.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="piml"`)
			writeErrors(w, http.StatusUnauthorized, "Authorization has been denied for this request.")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

// Configure changes the fake's settings.
func (f *FakeManualLogger) Configure(fn func(*FakeManualLoggerSettings)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.settings)
}

// BaseURL returns the Manual Logger Web root.
func (f *FakeManualLogger) BaseURL() string {
	return f.Server.URL + "/" + config.ManualLoggerSite
}

// HostPort returns the host and port the fake listens on.
func (f *FakeManualLogger) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(f.Server.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return host, p
}

// Roots returns a pool trusting the fake's certificate.
func (f *FakeManualLogger) Roots() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(f.Server.Certificate())
	return pool
}

func (f *FakeManualLogger) current() FakeManualLoggerSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *FakeManualLogger) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!DOCTYPE html><html><head><title>PI Manual Logger</title></head><body></body></html>"))
}

func (f *FakeManualLogger) handleConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, !f.current().Offline)
}

func (f *FakeManualLogger) handleDBConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": !f.current().DBOffline})
}

func (f *FakeManualLogger) handleUsername(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, f.current().Username)
}

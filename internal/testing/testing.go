// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"syscall"
	"testing"

	"github.com/spf13/afero"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper serves one canned response to every request and records what it saw.
type MockRoundTripper struct {
	response *http.Response
	err      error
	Requests []*http.Request
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Requests = append(m.Requests, req)
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct {
	Err error
}

func (f *FCloser) Read(p []byte) (n int, err error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

var _ io.ReadCloser = (*FCloser)(nil)

// FullDisk is an [afero.Fs] whose opened files fail every write with ENOSPC.
type FullDisk struct{ afero.Fs }

func (d *FullDisk) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := d.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return fullFile{f}, nil
}

func (d *FullDisk) Create(name string) (afero.File, error) {
	return d.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

type fullFile struct{ afero.File }

func (f fullFile) Write([]byte) (int, error) { return 0, syscall.ENOSPC }
func (f fullFile) WriteString(string) (int, error) { return 0, syscall.ENOSPC }

// AssertFileExists fails the test when path is missing from fs.
func AssertFileExists(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if ok, err := afero.Exists(fs, path); err != nil || !ok {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"TooManyRedirects", ErrTooManyRedirects, "Redirect_TooMany"},
		{"ImageTooLarge", ErrImageTooLarge, "Policy_ImageTooLarge"},
		{"InvalidImageURL", ErrInvalidImageURL, "Policy_InvalidURL"},
		{"RegistryCorrupt", ErrRegistryCorrupt, "Registry_Corrupt"},
		{"RegistryFlush", ErrRegistryFlush, "Registry_Flush"},
		{"SemaphoreTimeout", ErrSemaphoreTimeout, "Resource_SemaphoreTimeout"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"LeadValidation", ErrLeadValidation, "Lead_Validation"},
		{"AirtableAPI", ErrAirtableAPI, "Airtable_API"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "WrappedRedirect",
			err:      fmt.Errorf("get https://img.example/x.jpg: %w", ErrTooManyRedirects),
			expected: "Redirect_TooMany",
		},
		{
			name:     "DoubleWrapped",
			err:      fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrImageTooLarge)),
			expected: "Policy_ImageTooLarge",
		},
		{
			name:     "RetryFailedServer",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrServerHTTPError)),
			expected: "RetryFailed_HTTPServer",
		},
		{
			name:     "RetryFailedRefused",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("dial tcp: connection refused")),
			expected: "RetryFailed_ConnectionRefused",
		},
		{
			name:     "FilesystemPermission",
			err:      fmt.Errorf("%w: %w", ErrFilesystem, os.ErrPermission),
			expected: "Filesystem_Permission",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"404", fmt.Errorf("%w: status 404 Not Found", ErrClientHTTPError), "HTTP_404"},
		{"403", fmt.Errorf("%w: status 403 Forbidden", ErrClientHTTPError), "HTTP_403"},
		{"410", fmt.Errorf("%w: status 410 Gone", ErrClientHTTPError), "HTTP_410"},
		{"429", fmt.Errorf("%w: status 429", ErrClientHTTPError), "HTTP_429"},
		{"Generic4xx", fmt.Errorf("%w: status 400 Bad Request", ErrClientHTTPError), "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ParsingErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"URLParsing", fmt.Errorf("URL parsing failed: %w", ErrParsing), "Content_ParsingURL"},
		{"JSONParsing", fmt.Errorf("JSON parsing failed: %w", ErrParsing), "Content_ParsingJSON"},
		{"HTMLParsing", fmt.Errorf("HTML parsing failed: %w", ErrParsing), "Content_ParsingHTML"},
		{"GenericParsing", fmt.Errorf("parsing failed: %w", ErrParsing), "Content_ParsingOther"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ContextCanceled", context.Canceled, "System_ContextCanceled"},
		{"ContextDeadlineExceeded", context.DeadlineExceeded, "Network_Timeout"},
		{"ClientTimeout", &url.Error{Op: "Get", URL: "https://img.example/x.jpg", Err: context.DeadlineExceeded}, "Network_Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Timeout", errors.New("connection timeout occurred"), "Network_TimeoutGeneric"},
		{"ConnectionRefused", errors.New("connection refused"), "Network_ConnectionRefused"},
		{"DNSLookup", errors.New("no such host"), "Network_DNSLookup"},
		{"TLS", errors.New("tls handshake failed"), "Network_TLS"},
		{"Certificate", errors.New("certificate verify failed"), "Network_TLS"},
		{"ConnectionReset", errors.New("reset by peer"), "Network_ConnectionReset"},
		{"UnexpectedEOF", errors.New("unexpected EOF"), "Network_UnexpectedEOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	err := errors.New("some completely unknown error")
	result := CategorizeError(err)
	if result != "Unknown" {
		t.Errorf("CategorizeError(%v) = %q, want %q", err, result, "Unknown")
	}
}

// --- SanitizeFilename Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "hello", "hello"},
		{"WithSlash", "path/to/file", "path_to_file"},
		{"WithColon", "file:name", "file_name"},
		{"ConsecutiveUnderscores", "a___b", "a_b"},
		{"LeadingTrailingSpaces", "  file  ", "file"},
		{"Empty", "", "untitled"},
		{"OnlyInvalidChars", "<>:", "untitled"},
		{"ControlChars", "file\x01\x02name", "file_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongNames(t *testing.T) {
	result := SanitizeFilename(strings.Repeat("a", 150))
	if len(result) > 100 {
		t.Errorf("SanitizeFilename(long) length = %d, want <= 100", len(result))
	}
}

// --- Slugify Tests ---

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "Summer Menu", "summer-menu"},
		{"Punctuation", "Chef's Table!", "chefs-table"},
		{"Accents", "Café Crème", "cafe-creme"},
		{"CollapsedDashes", "a -- b", "a-b"},
		{"Hebrew", "ערב טעימות", "ערב-טעימות"},
		{"Digits", "Package 24", "package-24"},
		{"Empty", "", ""},
		{"OnlySymbols", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Slugify(tt.input)
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// --- Hash Tests ---

func TestContentHash(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"EmptyString", "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"HelloWorld", "hello world", "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{"SimpleText", "test", "098f6bcd4621d373cade4e832627b4f6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContentHash([]byte(tt.input))
			if result != tt.expected {
				t.Errorf("ContentHash(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStableName(t *testing.T) {
	if got := StableName("recA-Image"); got != "699a42bbd00d" {
		t.Errorf("StableName(recA-Image) = %q, want %q", got, "699a42bbd00d")
	}
	if got := StableName("recA-Image-1"); got != "a27c1e39c22b" {
		t.Errorf("StableName(recA-Image-1) = %q, want %q", got, "a27c1e39c22b")
	}
	if len(StableName("anything")) != 12 {
		t.Error("StableName() should always return 12 characters")
	}
}

func TestCalculateFileMD5(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(tmpFile, []byte("hello world"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	result, err := CalculateFileMD5(tmpFile)
	if err != nil {
		t.Fatalf("CalculateFileMD5() unexpected error: %v", err)
	}
	if result != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("CalculateFileMD5() = %q", result)
	}
}

func TestCalculateFileMD5_NonExistentFile(t *testing.T) {
	if _, err := CalculateFileMD5("/nonexistent/path/file.txt"); err == nil {
		t.Error("CalculateFileMD5() expected error for non-existent file, got nil")
	}
}

// --- WriteFileAtomic Tests ---

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "doc.json")

	if err := WriteFileAtomic(target, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() unexpected error: %v", err)
	}
	if err := WriteFileAtomic(target, []byte(`{"a":2}`), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("content = %q, want %q", data, `{"a":2}`)
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 1 {
		t.Errorf("expected only the target file to remain, found %d entries", len(entries))
	}
}

func TestWriteFileAtomic_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := WriteFileAtomic(filepath.Join(blocker, "doc.json"), []byte("{}"), 0644)
	if err == nil {
		t.Fatal("WriteFileAtomic() expected error when parent is a file")
	}
	if !errors.Is(err, ErrFilesystem) {
		t.Errorf("WriteFileAtomic() error = %v, want wrapped ErrFilesystem", err)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	if FileExists(file) {
		t.Error("FileExists() = true before creation")
	}
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !FileExists(file) {
		t.Error("FileExists() = false after creation")
	}
	if FileExists(dir) {
		t.Error("FileExists() should be false for directories")
	}
}

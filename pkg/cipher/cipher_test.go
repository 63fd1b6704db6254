package cipher

import "testing"

func TestNewAESGCM(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{
			name:    "valid 32-byte key",
			key:     make([]byte, 32),
			wantErr: false,
		},
		{
			name:    "invalid short key",
			key:     make([]byte, 16),
			wantErr: true,
		},
		{
			name:    "invalid long key",
			key:     make([]byte, 64),
			wantErr: true,
		},
		{
			name:    "empty key",
			key:     []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAESGCM(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAESGCM() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && c == nil {
				t.Error("NewAESGCM() returned nil without error")
			}
		})
	}
}

func TestNewAESGCMFromPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "my-secure-password", wantErr: false},
		{name: "empty password", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAESGCMFromPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAESGCMFromPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && c == nil {
				t.Error("NewAESGCMFromPassword() returned nil without error")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewAESGCMFromPassword("test-password")
	if err != nil {
		t.Fatalf("NewAESGCMFromPassword() error = %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ctx := []byte("entry-key-42")

	ciphertext, err := c.Encrypt(plaintext, ctx)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("Encrypt() returned plaintext unmodified")
	}

	got, err := c.Decrypt(ciphertext, ctx)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongContextFails(t *testing.T) {
	c, err := NewAESGCMFromPassword("test-password")
	if err != nil {
		t.Fatalf("NewAESGCMFromPassword() error = %v", err)
	}

	ciphertext, err := c.Encrypt([]byte("payload"), []byte("key-a"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := c.Decrypt(ciphertext, []byte("key-b")); err == nil {
		t.Error("Decrypt() with mismatched context should fail")
	}
}

func TestDecryptShortCiphertext(t *testing.T) {
	c, err := NewAESGCMFromPassword("test-password")
	if err != nil {
		t.Fatalf("NewAESGCMFromPassword() error = %v", err)
	}

	if _, err := c.Decrypt([]byte("x"), nil); err == nil {
		t.Error("Decrypt() with short ciphertext should fail")
	}
}

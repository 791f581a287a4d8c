package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Well-known development key (hardhat account #0).
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const devAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestWalletSignAndRecover(t *testing.T) {
	w, err := NewWallet("0x" + devKey)
	if err != nil {
		t.Fatal(err)
	}
	if w.Address().Hex() != devAddr {
		t.Fatalf("address = %s, want %s", w.Address().Hex(), devAddr)
	}
	if w.PrivateKeyHex() != devKey {
		t.Errorf("PrivateKeyHex = %s", w.PrivateKeyHex())
	}

	msg := []byte("marketd login\nchain: 8453")
	sig, err := w.SignText(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+65*2 {
		t.Fatalf("signature = %s", sig)
	}
	if v := sig[len(sig)-2:]; v != "1b" && v != "1c" {
		t.Errorf("recovery byte = %s, want 1b or 1c", v)
	}

	got, err := RecoverText(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got != w.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), w.Address().Hex())
	}

	other, err := RecoverText([]byte("tampered"), sig)
	if err == nil && other == w.Address() {
		t.Error("tampered message recovered the signer")
	}
}

func TestRecoverTextRejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "nothex", "0x" + strings.Repeat("00", 64) + "05"} {
		if _, err := RecoverText([]byte("m"), sig); err == nil {
			t.Errorf("RecoverText(%q) succeeded", sig)
		}
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey(devKey, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(blob), devAddr) {
		t.Errorf("key file does not record the address: %s", blob)
	}
	if strings.Contains(string(blob), devKey) {
		t.Fatal("key file contains the plaintext key")
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != devKey {
		t.Errorf("DecryptKey = %s", got)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
	if _, err := EncryptKey(devKey, ""); err == nil {
		t.Error("empty password accepted")
	}
	if _, err := EncryptKey("zz", "pw"); err == nil {
		t.Error("invalid key accepted")
	}
}

func TestLoadKey(t *testing.T) {
	if k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + devKey}); err != nil || k != devKey {
		t.Errorf("raw = %s, %v", k, err)
	}

	blob, err := EncryptKey(devKey, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	if k, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}); err != nil || k != devKey {
		t.Errorf("file = %s, %v", k, err)
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("empty config accepted")
	}
}

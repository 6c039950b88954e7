package upload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	nonceSize  = 16
	tagSize    = 16
	headerSize = saltSize + nonceSize + tagSize
	kdfRounds  = 100000
)

// ErrMissingKey 上传了加密文件但没有配置密码
var ErrMissingKey = errors.New("encrypted upload but no decrypt key configured")

// Decrypt 解密 AES-256-GCM 加密的导出文件
// 格式: salt(16) + nonce(16) + tag(16) + ciphertext，密钥由 PBKDF2-SHA256 派生
func Decrypt(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrMissingKey
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("encrypted file too small: %d bytes", len(data))
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	tag := data[saltSize+nonceSize : headerSize]
	ciphertext := data[headerSize:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	// GCM 的 Open 需要 ciphertext+tag 拼在一起
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Encrypt 生成与 Decrypt 对应的加密文件，salt 和 nonce 由调用方提供
func Encrypt(plaintext []byte, password string, salt, nonce []byte) ([]byte, error) {
	if len(salt) != saltSize || len(nonce) != nonceSize {
		return nil, fmt.Errorf("salt and nonce must be %d bytes", saltSize)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, headerSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, tag...)
	return append(out, ciphertext...), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

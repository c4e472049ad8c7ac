package hash

import (
	"math/rand"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

func TestID(t *testing.T) {
	tests := []struct {
		name string
		data string
		id   uint64
	}{
		{"empty string", "", 0xef46db3751d8e999},
		{"short string", "test", 0x4fdcca5ddb678139},
		{"long string", "this is a longer test string to hash", 0x69275f7f7ee59dbd},
		{"another string", "another test string", 0x212a22f593810bec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.id, ID(tt.data))
		})
	}
}

func TestPayload(t *testing.T) {
	assert.Equal(t, uint32(0x51d8e999), Payload(nil))
	assert.Equal(t, uint32(0xdb678139), Payload([]byte("test")))

	data := []byte(randString(64))
	assert.Equal(t, uint32(xxhash.Sum64(data)), Payload(data))
	assert.NotEqual(t, Payload([]byte("a")), Payload([]byte("b")))
}

func TestAssemblyKey(t *testing.T) {
	k := AssemblyKey("+32470000000", 7, 0xCAFEBABE)
	assert.Equal(t, k, AssemblyKey("+32470000000", 7, 0xCAFEBABE))
	assert.NotEqual(t, k, AssemblyKey("+32470000001", 7, 0xCAFEBABE))
	assert.NotEqual(t, k, AssemblyKey("+32470000000", 8, 0xCAFEBABE))
	assert.NotEqual(t, k, AssemblyKey("+32470000000", 7, 0xCAFEBABF))
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range b {
		b[i] = letters[seededRand.Intn(len(letters))]
	}

	return string(b)
}

func BenchmarkPayload(b *testing.B) {
	data := []byte(randString(2080))
	b.ResetTimer()
	for b.Loop() {
		Payload(data)
	}
}

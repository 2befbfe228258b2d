package tokenstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
)

type fakeSecrets struct {
	values map[string]string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v := f.values[*params.SecretId]
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestStaticToken(t *testing.T) {
	secrets := &fakeSecrets{values: map[string]string{
		"directory/acme/github-token": "ghp_testtoken",
	}}
	store := New("acme", "directory", secrets)

	token, err := store.StaticToken(context.Background(), "github-token")
	assert.NoError(t, err)
	assert.Equal(t, "ghp_testtoken", token)
}

func TestOAuthTokenSingleRefreshPerExpiry(t *testing.T) {
	var refreshes int32
	store := New("acme", "directory", &fakeSecrets{})
	store.RegisterOAuth("ramp", func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&refreshes, 1)
		// Slow refresh widens the race window.
		time.Sleep(10 * time.Millisecond)
		return "tok-1", time.Hour, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := store.OAuthToken(context.Background(), "ramp")
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes),
		"concurrent callers must share one refresh")
}

func TestOAuthTokenRefreshesAfterExpiry(t *testing.T) {
	now := time.Now()
	var refreshes int32
	store := New("acme", "directory", &fakeSecrets{})
	store.now = func() time.Time { return now }
	store.RegisterOAuth("zoom", func(ctx context.Context) (string, time.Duration, error) {
		n := atomic.AddInt32(&refreshes, 1)
		if n == 1 {
			return "tok-1", 30 * time.Minute, nil
		}
		return "tok-2", 30 * time.Minute, nil
	})

	token, err := store.OAuthToken(context.Background(), "zoom")
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Still valid, no second refresh.
	token, err = store.OAuthToken(context.Background(), "zoom")
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))

	// Advance past expiry.
	now = now.Add(time.Hour)
	token, err = store.OAuthToken(context.Background(), "zoom")
	assert.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(2), atomic.LoadInt32(&refreshes))
}

func TestOAuthTokenUnknownProvider(t *testing.T) {
	store := New("acme", "directory", &fakeSecrets{})
	_, err := store.OAuthToken(context.Background(), "nope")
	assert.Error(t, err)
}

package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket string
	// CredentialsJSON is a service account key. When empty, ADC is used and
	// URLs are signed through the IAM credentials API as SignerEmail.
	CredentialsJSON  string
	SignerEmail      string
	SignerPrivateKey string
}

type GCSBlobStore struct {
	client *storage.Client
	cfg    GCSConfig
}

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func NewGCSBlobStore(ctx context.Context, cfg GCSConfig) (*GCSBlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var (
		client *storage.Client
		err    error
	)
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, err
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %v", cfg.Bucket, err)
	}
	return &GCSBlobStore{client: client, cfg: cfg}, nil
}

func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}

func (s *GCSBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (Handle, error) {
	wc := s.client.Bucket(s.cfg.Bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return Handle{}, unavailable("blob_put", fmt.Errorf("failed to upload %s: %v", path, err))
	}
	if err := wc.Close(); err != nil {
		return Handle{}, unavailable("blob_put", fmt.Errorf("failed to close writer: %v", err))
	}
	attrs := wc.Attrs()
	h := Handle{Path: path, ContentType: contentType, Size: int64(len(data)), UpdatedAt: time.Now().UTC()}
	if attrs != nil {
		h.UpdatedAt = attrs.Updated
	}
	return h, nil
}

func (s *GCSBlobStore) List(ctx context.Context, prefix string) ([]Handle, error) {
	it := s.client.Bucket(s.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []Handle
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable("blob_list", err)
		}
		out = append(out, Handle{
			Path:        attrs.Name,
			ContentType: attrs.ContentType,
			Size:        attrs.Size,
			UpdatedAt:   attrs.Updated,
		})
	}
	return out, nil
}

// SignedURL issues a V4 GET URL. Keys from the environment are preferred;
// otherwise the IAM signBlob API signs on behalf of the runtime account.
func (s *GCSBlobStore) SignedURL(ctx context.Context, h Handle, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	accessID, privateKey, ok, err := s.signerFromConfig()
	if err != nil {
		return "", err
	}
	if ok {
		opts.GoogleAccessID = accessID
		opts.PrivateKey = privateKey
	} else {
		email, signBytes, err := s.iamSigner(ctx)
		if err != nil {
			return "", err
		}
		opts.GoogleAccessID = email
		opts.SignBytes = signBytes
	}
	return storage.SignedURL(s.cfg.Bucket, h.Path, opts)
}

func (s *GCSBlobStore) signerFromConfig() (string, []byte, bool, error) {
	if cred := strings.TrimSpace(s.cfg.CredentialsJSON); cred != "" {
		var key serviceAccountJSON
		if err := json.Unmarshal([]byte(cred), &key); err != nil {
			return "", nil, false, fmt.Errorf("invalid GCS_CREDENTIALS_JSON: %w", err)
		}
		if key.ClientEmail == "" || key.PrivateKey == "" {
			return "", nil, false, errors.New("GCS_CREDENTIALS_JSON missing client_email or private_key")
		}
		return key.ClientEmail, normalizePrivateKey(key.PrivateKey), true, nil
	}
	email := strings.TrimSpace(s.cfg.SignerEmail)
	key := strings.TrimSpace(s.cfg.SignerPrivateKey)
	if email == "" || key == "" {
		return "", nil, false, nil
	}
	return email, normalizePrivateKey(key), true, nil
}

func normalizePrivateKey(key string) []byte {
	return []byte(strings.ReplaceAll(key, "\\n", "\n"))
}

func (s *GCSBlobStore) iamSigner(ctx context.Context) (string, func([]byte) ([]byte, error), error) {
	email := strings.TrimSpace(s.cfg.SignerEmail)
	if email == "" && metadata.OnGCE() {
		defaultEmail, err := metadata.Email("default")
		if err != nil {
			return "", nil, fmt.Errorf("failed to get default service account email: %w", err)
		}
		email = defaultEmail
	}
	if email == "" {
		return "", nil, errors.New("GCS_SIGNER_EMAIL is required when no private key is provided")
	}

	creds, err := google.FindDefaultCredentials(ctx, iamcredentials.CloudPlatformScope)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load ADC credentials: %w", err)
	}
	svc, err := iamcredentials.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create iamcredentials service: %w", err)
	}

	resource := fmt.Sprintf("projects/-/serviceAccounts/%s", email)
	signBytes := func(data []byte) ([]byte, error) {
		req := &iamcredentials.SignBlobRequest{
			Payload: base64.StdEncoding.EncodeToString(data),
		}
		resp, err := svc.Projects.ServiceAccounts.SignBlob(resource, req).Do()
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(resp.SignedBlob)
	}
	return email, signBytes, nil
}

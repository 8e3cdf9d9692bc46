package service

import (
	"errors"

	"golang.org/x/oauth2"

	"github.com/copaint/copaint/cache"
	"github.com/copaint/copaint/mq"
	"github.com/copaint/copaint/store"
	"github.com/copaint/copaint/worker"
)

// Errors returned to callers for expected failure modes. Anything else
// bubbling out of the service is an internal error.
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidShareCode     = errors.New("invalid share code")
	ErrInvalidSharePassword = errors.New("invalid share password")
	ErrInvalidPermission    = errors.New("invalid permission level")
	ErrRequestResolved      = errors.New("permission request already resolved")
	ErrFileRecycled         = errors.New("file is in the recycle bin")
)

type Service struct {
	Store        store.CoPaintStore
	Cache        cache.CoPaintCache
	MQ           mq.MessageQueue
	Janitor      *worker.Janitor
	OAuthConfigs map[string]*oauth2.Config
	JWTSecret    []byte
	AppOrigin    string
}

func NewService(
	store store.CoPaintStore,
	cache cache.CoPaintCache,
	mq mq.MessageQueue,
	janitor *worker.Janitor,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	appOrigin string,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	return &Service{
		Store:        store,
		Cache:        cache,
		MQ:           mq,
		Janitor:      janitor,
		OAuthConfigs: oauthConfigs,
		JWTSecret:    jwtSecret,
		AppOrigin:    appOrigin,
	}, nil
}

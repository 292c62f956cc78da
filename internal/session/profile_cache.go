package session

import (
	"time"

	"github.com/patrickmn/go-cache"

	"onboarding_backend/internal/identity"
)

// ProfileCache keeps the most recently fetched profile per user. A nil entry
// records that the user has no profile document yet.
type ProfileCache struct {
	cache *cache.Cache
}

func NewProfileCache(ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ProfileCache{cache: cache.New(ttl, 2*ttl)}
}

func (p *ProfileCache) Get(uid string) (*identity.Profile, bool) {
	v, found := p.cache.Get(uid)
	if !found {
		return nil, false
	}
	profile, _ := v.(*identity.Profile)
	return profile, true
}

func (p *ProfileCache) Set(uid string, profile *identity.Profile) {
	p.cache.SetDefault(uid, profile)
}

func (p *ProfileCache) Invalidate(uid string) {
	p.cache.Delete(uid)
}

// MarkMissing records that uid has no profile unless a profile was stored in
// the meantime.
func (p *ProfileCache) MarkMissing(uid string) {
	_ = p.cache.Add(uid, (*identity.Profile)(nil), cache.DefaultExpiration)
}

package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Draft is the typed view of one session's draft entries.
type Draft struct {
	store  Store
	sid    string
	logger *zap.Logger
}

func New(store Store, sid string, logger *zap.Logger) *Draft {
	return &Draft{store: store, sid: sid, logger: logger}
}

func (d *Draft) Registration(ctx context.Context) (*Registration, error) {
	var r Registration
	ok, err := d.load(ctx, KeyRegistration, &r)
	if !ok || err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Draft) PutRegistration(ctx context.Context, r *Registration) error {
	return d.save(ctx, KeyRegistration, r)
}

func (d *Draft) PersonalInfo(ctx context.Context) (*PersonalInfo, error) {
	var p PersonalInfo
	ok, err := d.load(ctx, KeyPersonalInfo, &p)
	if !ok || err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *Draft) PutPersonalInfo(ctx context.Context, p *PersonalInfo) error {
	return d.save(ctx, KeyPersonalInfo, p)
}

func (d *Draft) Location(ctx context.Context) (*Location, error) {
	var l Location
	ok, err := d.load(ctx, KeyLocation, &l)
	if !ok || err != nil {
		return nil, err
	}
	return &l, nil
}

func (d *Draft) PutLocation(ctx context.Context, l *Location) error {
	return d.save(ctx, KeyLocation, l)
}

// Snapshot reads all three slices.
func (d *Draft) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Registration, err = d.Registration(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.PersonalInfo, err = d.PersonalInfo(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Location, err = d.Location(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Clear removes all three slices together.
func (d *Draft) Clear(ctx context.Context) error {
	if err := d.store.Delete(ctx, d.sid, Keys...); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// ClearRegistration removes only the registration slice; used when a user logs in.
func (d *Draft) ClearRegistration(ctx context.Context) error {
	if err := d.store.Delete(ctx, d.sid, KeyRegistration); err != nil {
		return fmt.Errorf("clear registration draft: %w", err)
	}
	return nil
}

// load decodes the entry into dst. A malformed stored value counts as absent.
func (d *Draft) load(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := d.store.Load(ctx, d.sid, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load draft %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		d.logger.Warn("Discarding malformed draft entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (d *Draft) save(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", key, err)
	}
	if err := d.store.Save(ctx, d.sid, key, raw, 0); err != nil {
		return fmt.Errorf("save draft %s: %w", key, err)
	}
	return nil
}

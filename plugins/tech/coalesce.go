package tech

import (
	"context"
	"time"

	"github.com/joshp123/techhome/plugins/tech/zone"
	"golang.org/x/sync/singleflight"
)

// coalescingAPI shares one in-flight fetch between callers asking for the same
// (module, zone) at the same time. Nothing is cached past the call itself.
// Callers must treat the shared documents as read-only.
//
// The shared fetch runs detached from any single caller and is bounded by
// timeout, so one caller giving up never fails the others.
type coalescingAPI struct {
	API
	group   singleflight.Group
	timeout time.Duration
}

// Coalesce wraps api so concurrent identical fetches hit the vendor once.
// A non-positive timeout falls back to the default request timeout.
func Coalesce(api API, timeout time.Duration) API {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &coalescingAPI{API: api, timeout: timeout}
}

func (c *coalescingAPI) shared(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}

func (c *coalescingAPI) FetchZone(ctx context.Context, moduleID, zoneID string) (zone.Document, error) {
	ch := c.group.DoChan("zone/"+moduleID+"/"+zoneID, func() (any, error) {
		fetchCtx, cancel := c.shared(ctx)
		defer cancel()
		return c.API.FetchZone(fetchCtx, moduleID, zoneID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(zone.Document), nil
	}
}

func (c *coalescingAPI) FetchModuleZones(ctx context.Context, moduleID string) (map[string]zone.Document, error) {
	ch := c.group.DoChan("module/"+moduleID, func() (any, error) {
		fetchCtx, cancel := c.shared(ctx)
		defer cancel()
		return c.API.FetchModuleZones(fetchCtx, moduleID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]zone.Document), nil
	}
}

// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// healthProbeTimeout bounds the whole dependency sweep so a hung backend
// cannot stall liveness checks.
const healthProbeTimeout = 2 * time.Second

// Probe reports one dependency's availability within the given context.
type Probe func(ctx context.Context) error

// HealthCheck reports liveness plus per-dependency readiness.
//
// Liveness is the response itself: the handler always answers 200 as long as
// the process is serving. Probes run concurrently under a shared deadline and
// only affect the reported status; a missing dependency degrades, it never
// kills the endpoint.
func HealthCheck(service string, probes map[string]Probe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()

		var mu sync.Mutex
		dependencies := make(map[string]string, len(probes))

		g, ctx := errgroup.WithContext(ctx)
		for name, probe := range probes {
			g.Go(func() error {
				err := probe(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					dependencies[name] = "unavailable"
				} else {
					dependencies[name] = "ok"
				}
				return nil
			})
		}
		_ = g.Wait()

		status := "ok"
		for _, state := range dependencies {
			if state != "ok" {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       status,
			"service":      service,
			"dependencies": dependencies,
		})
	}
}

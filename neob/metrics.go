// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package neob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics exposes codec-cache behavior as prometheus counters. A nil
// receiver is a no-op so metrics stay entirely optional.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &cacheMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "neob_codec_cache_hits_total",
			Help: "Per-type codec cache hits.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "neob_codec_cache_misses_total",
			Help: "Per-type codec cache misses (codec compilations).",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "neob_codec_cache_evictions_total",
			Help: "Per-type codec cache evictions.",
		}),
	}
}

func (m *cacheMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

// Package birdfeed ingests bird observation data from the eBird API into a
// SQL analytical store.
//
// Six declarative resources cover the observation, reference, and derived
// statistics surfaces of the API:
//
//   - recent_observations    recent sightings, merged by submission id
//   - notable_observations   rarity-flagged sightings, merged by submission id
//   - species_list           region species checklist, replaced per run
//   - hotspots               birding hotspots, merged by location id
//   - taxonomy               global species reference, replaced per run
//   - region_stats           per-day cardinalities, merged by (region, date)
//
// Each resource declares its endpoint, record transformation, primary key,
// and write disposition; the run orchestrator in internal/pipeline sequences
// them per region and applies the resulting record streams to the store.
// Failures are isolated at the smallest unit that preserves forward
// progress: a failed resource does not stop the region, and a failed region
// does not stop the batch. Only a missing API token or an unreachable
// destination aborts a batch.
//
// # Quick Start
//
// Run a single-region ingest from the CLI:
//
//	export EBIRD_API_TOKEN=your-token
//	birdfeed run --region US-CA --database data/birdfeed.db
//
// Or embed the engine:
//
//	import (
//	    "context"
//	    "github.com/openaviary/birdfeed/internal/pipeline"
//	    "github.com/openaviary/birdfeed/pkg/clients"
//	    "github.com/openaviary/birdfeed/pkg/config"
//	    "github.com/openaviary/birdfeed/pkg/ebird"
//	    "github.com/openaviary/birdfeed/pkg/logger"
//	    "github.com/openaviary/birdfeed/pkg/store"
//	)
//
//	cfg, _ := config.Load("")
//	log := logger.Get()
//
//	client := clients.NewAPIClient(clients.APIConfig{
//	    BaseURL: cfg.APIBaseURL,
//	    Token:   cfg.APIToken,
//	}, log)
//	st, _ := store.Open(context.Background(), cfg.DatabaseURL, cfg.Dataset, log)
//	source := ebird.NewSource(client, log)
//
//	engine := pipeline.New(client, source.Resources(), st, pipeline.Options{
//	    LookbackDays: cfg.LookbackDays,
//	    MaxResults:   cfg.MaxResults,
//	}, log)
//	result, err := engine.Run(context.Background(), "US-CA")
//
// # Key Packages
//
//	pkg/ebird         - Declarative extraction resources
//	pkg/store         - Write dispositions over SQLite and PostgreSQL
//	pkg/clients       - Rate-limited, token-authenticated API client
//	internal/pipeline - Region run and batch orchestration
//	pkg/config        - File/env configuration (BIRDFEED_*, EBIRD_API_TOKEN)
package birdfeed

// seeder writes a set of sample storage-terminal documents to a folder
// and runs them through the processing pipeline. Useful for demos and
// for exercising a fresh database without real archive files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
)

var samples = map[string]string{
	"inspection_t101.txt": `TANK INSPECTION REPORT

Tank: T-101
Date: 2026-03-14
Inspector: R. Okafor

External shell inspection completed per API 653. Minor surface
corrosion observed on the north stairway landing, no action required
before the next scheduled interval. Shell thickness readings within
tolerance at all eight test points. Pressure relief valve PRV-101-A
bench tested at 15.5 psi set point, reseated cleanly.

Recommendation: reseal the secondary containment expansion joint on
the east dike wall before the wet season.`,

	"transfer_manifest_0492.txt": `PRODUCT TRANSFER MANIFEST #0492

Origin: Berth 3, Vessel MT Calloway
Destination: Tank T-204
Product: Ultra-low sulfur diesel
Quantity: 48,300 barrels
Start: 2026-03-02 06:40
End: 2026-03-03 19:15

Custody transfer metered at skid M-7, proving report attached.
Line displacement accounted to tank T-203. No demurrage claimed.`,

	"invoice_8821.txt": `INVOICE 8821

Bill to: Harborview Terminals LLC
Service: Tank cleaning and degassing, tank T-117
Line items:
  Vacuum truck services ........ 14,200.00
  Vapor control rental ..........  3,850.00
  Waste disposal manifest fee ...    640.00
Total due: 18,690.00
Terms: Net 45`,

	"permit_air_2026.txt": `AIR QUALITY OPERATING PERMIT

Permit number: AQ-2026-0117
Facility: Harborview Marine Terminal
Expires: 2027-06-30

The facility is authorized to operate external floating roof tanks
T-101 through T-120 subject to the monitoring conditions of
40 CFR part 60 subpart Kb. Annual seal gap inspections required.
Records retained five years and made available on request.`,

	"incident_2026_007.txt": `INCIDENT REPORT 2026-007

Location: Loading rack, bay 2
Classification: Near miss

During truck loading a driver bypassed the grounding verification
interlock. The loading arm was shut down by the rack operator before
flow began. No product released, no injuries. Interlock bypass key
has been removed from the rack cabinet and a toolbox talk was held
with all carriers on site.`,
}

var (
	dbPath   = flag.String("db", "./docflow_db", "path to the database directory")
	seedDir  = flag.String("dir", "./seed_docs", "directory the sample documents are written to")
	liveMode = flag.Bool("live", false, "use the configured AI provider instead of the built-in mock")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// writeSamples materializes the sample documents and returns their paths.
func writeSamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(samples))
	for name, contents := range samples {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func main() {
	opts := []docflow.DatabaseOption{}
	if !*liveMode {
		opts = append(opts, docflow.WithProvider(mock.NewMockProvider()))
	}

	db, err := docflow.NewDatabase(*dbPath, opts...)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	p, err := db.NewPipeline()
	if err != nil {
		panic(err)
	}
	defer p.Release()

	paths, err := writeSamples(*seedDir)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	jobIds := make([]string, 0, len(paths))
	for _, path := range paths {
		job, err := p.Submit(ctx, path)
		if err != nil {
			slog.Error("submission failed", "path", path, "err", err)
			continue
		}
		jobIds = append(jobIds, job.Id)
	}
	p.Wait()

	for _, id := range jobIds {
		job, err := p.JobStatus(ctx, id)
		if err != nil {
			slog.Error("lookup failed", "jobId", id, "err", err)
			continue
		}
		status := "ok"
		if job.Status != core.JobCompleted {
			status = job.Error
		}
		fmt.Printf("%s  doc=%d  %s\n", job.Id, job.DocumentId, status)
	}
}

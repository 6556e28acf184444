package emitter

import (
	"time"

	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

var runTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeResource(profile, id, version string, tags map[string]string) resource.Resource {
	return resource.New(
		resource.Identity{Profile: profile, Region: "us-east-1", Type: resource.TypeCluster, ID: id},
		"123456789012",
		"arn:aws:elasticache:us-east-1:123456789012:cluster:"+id,
		map[string]string{
			resource.AttrEngine:        "redis",
			resource.AttrEngineVersion: version,
			resource.AttrStatus:        "available",
			resource.AttrNodeTypes:     "cache.t3.micro",
		},
		tags,
		runTime,
	)
}

func makeResult(resources ...resource.Resource) *orchestrator.Result {
	counts := map[string]int{}
	for _, r := range resources {
		counts[r.Profile]++
	}
	res := &orchestrator.Result{
		RunID:      "run-1",
		StartedAt:  runTime,
		FinishedAt: runTime.Add(3 * time.Second),
		Resources:  resources,
		TasksTotal: len(counts),
	}
	for p, n := range counts {
		res.Profiles = append(res.Profiles, orchestrator.ProfileSummary{
			Profile: p, Resources: n, RegionsOK: []string{"us-east-1"},
		})
	}
	return res
}

func withFailure(res *orchestrator.Result, profile string) *orchestrator.Result {
	res.Profiles = append(res.Profiles, orchestrator.ProfileSummary{
		Profile: profile, RegionsFailed: []string{"us-east-1"},
	})
	res.Failures = failure.Summary{Entries: []failure.Entry{{
		Profile:  profile,
		Kind:     failure.KindCredentialExpired,
		Message:  "token expired",
		Guidance: failure.Guidance(failure.KindCredentialExpired, profile, "token expired"),
		Regions:  []string{"us-east-1"},
		Count:    1,
	}}}
	res.TasksTotal++
	res.TasksFailed++
	return res
}

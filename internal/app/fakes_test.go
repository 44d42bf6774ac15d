package app_test

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/pkg/domain/inventory"
	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
)

// In-memory fakes for the application services. They mirror the semantics
// of the real repositories closely enough for the services to be exercised
// without a database.

type fakeTenantRepo struct {
	orgs []*tenant.Organisation
}

func (f *fakeTenantRepo) GetByID(ctx context.Context, id int64) (*tenant.Organisation, error) {
	for _, o := range f.orgs {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeTenantRepo) ListActiveWithService(ctx context.Context, service tenant.ServiceName) ([]*tenant.Organisation, error) {
	return f.orgs, nil
}

func (f *fakeTenantRepo) GetEncryptedCredentials(ctx context.Context, orgID int64, service tenant.ServiceName) (string, error) {
	return "", shared.ErrNotFound
}

type fakeGateway struct {
	scans     map[int64][]*tenable.RemoteScan
	scansErr  map[int64]error
	results   map[int64][]*tenable.RemoteScanResult
	vulns     map[string][]tenable.RawVulnerability
	fetchErr  error
	fetchedID string
}

func (f *fakeGateway) ListScans(ctx context.Context, orgID int64) ([]*tenable.RemoteScan, error) {
	if err := f.scansErr[orgID]; err != nil {
		return nil, err
	}
	return f.scans[orgID], nil
}

func (f *fakeGateway) ListScanResults(ctx context.Context, orgID int64, since time.Time) ([]*tenable.RemoteScanResult, error) {
	return f.results[orgID], nil
}

func (f *fakeGateway) FetchVulnerabilities(ctx context.Context, orgID int64, scanResultID string) ([]tenable.RawVulnerability, error) {
	f.fetchedID = scanResultID
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.vulns[scanResultID], nil
}

type fakeScanRepo struct {
	docs      map[int64]map[string]*scan.Scan
	ensureErr error
	inserted  int
	updated   int
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{docs: make(map[int64]map[string]*scan.Scan)}
}

func (f *fakeScanRepo) add(orgID int64, s *scan.Scan) {
	if f.docs[orgID] == nil {
		f.docs[orgID] = make(map[string]*scan.Scan)
	}
	f.docs[orgID][s.TenableScanID] = s
}

func (f *fakeScanRepo) EnsureUniqueIndex(ctx context.Context, orgID int64) error {
	return f.ensureErr
}

func (f *fakeScanRepo) ListByTenableIDs(ctx context.Context, orgID int64, ids []string) ([]*scan.Scan, error) {
	var out []*scan.Scan
	for _, id := range ids {
		if s, ok := f.docs[orgID][id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScanRepo) ListTenableIDs(ctx context.Context, orgID int64) ([]string, error) {
	var ids []string
	for id := range f.docs[orgID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeScanRepo) GetByTenableID(ctx context.Context, orgID int64, tenableID string) (*scan.Scan, error) {
	if s, ok := f.docs[orgID][tenableID]; ok {
		return s, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeScanRepo) Insert(ctx context.Context, orgID int64, scans []*scan.Scan) error {
	for _, s := range scans {
		f.add(orgID, s)
		f.inserted++
	}
	return nil
}

func (f *fakeScanRepo) Update(ctx context.Context, orgID int64, s *scan.Scan) error {
	f.add(orgID, s)
	f.updated++
	return nil
}

func (f *fakeScanRepo) MarkTenableDeleted(ctx context.Context, orgID int64, tenableIDs []string) error {
	for _, id := range tenableIDs {
		if s, ok := f.docs[orgID][id]; ok {
			s.IsTenableDeleted = true
		}
	}
	return nil
}

func (f *fakeScanRepo) List(ctx context.Context, orgID int64, includeDeleted bool) ([]*scan.Scan, error) {
	var out []*scan.Scan
	for _, s := range f.docs[orgID] {
		if !includeDeleted && s.IsTenableDeleted {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeJobQueue struct {
	nextID  int64
	entries []*job.Entry
}

func (f *fakeJobQueue) Insert(ctx context.Context, e *job.Entry) error {
	f.nextID++
	e.ID = f.nextID
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeJobQueue) Exists(ctx context.Context, orgID int64, jobType string, params job.Params) (bool, error) {
	for _, e := range f.entries {
		if e.OrganisationID == orgID && e.Type == jobType &&
			e.Params.ScanID == params.ScanID &&
			e.Params.ScanResultID == params.ScanResultID &&
			e.Params.LastModificationDate == params.LastModificationDate {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobQueue) ClaimNextPending(ctx context.Context, maxAttempts int) (*job.Entry, error) {
	for _, e := range f.entries {
		if e.Status == nil && e.Attempts < maxAttempts {
			status := job.StatusRunning
			e.Status = &status
			e.Attempts++
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeJobQueue) Delete(ctx context.Context, id int64) error {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeJobQueue) Release(ctx context.Context, id int64) error {
	for _, e := range f.entries {
		if e.ID == id {
			e.Status = nil
			return nil
		}
	}
	return nil
}

func (f *fakeJobQueue) ListByOrganisation(ctx context.Context, orgID int64) ([]*job.Entry, error) {
	var out []*job.Entry
	for _, e := range f.entries {
		if e.OrganisationID == orgID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeReportRepo struct {
	reports map[string]*report.Report
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{reports: make(map[string]*report.Report)}
}

func reportKey(orgID int64, scanID string, mod int64) string {
	return fmt.Sprintf("%d/%s/%d", orgID, scanID, mod)
}

func (f *fakeReportRepo) FindByScanAndModification(ctx context.Context, orgID int64, tenableScanID string, lastModification int64) (*report.Report, error) {
	if r, ok := f.reports[reportKey(orgID, tenableScanID, lastModification)]; ok {
		return r, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeReportRepo) Create(ctx context.Context, orgID int64, r *report.Report) error {
	r.ID = primitive.NewObjectID()
	f.reports[reportKey(orgID, r.TenableScanID, r.LastModificationDate)] = r
	return nil
}

func (f *fakeReportRepo) Update(ctx context.Context, orgID int64, r *report.Report) error {
	f.reports[reportKey(orgID, r.TenableScanID, r.LastModificationDate)] = r
	return nil
}

func (f *fakeReportRepo) Get(ctx context.Context, orgID int64, id string) (*report.Report, error) {
	for _, r := range f.reports {
		if r.ID.Hex() == id {
			return r, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeReportRepo) List(ctx context.Context, orgID int64) ([]*report.Report, error) {
	var out []*report.Report
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReportRepo) ListModificationDates(ctx context.Context, orgID int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, r := range f.reports {
		out[r.LastModificationDate] = true
	}
	return out, nil
}

type fakeVulnRepo struct {
	docs    map[string]*vulnerability.Vulnerability
	saveErr error
}

func newFakeVulnRepo() *fakeVulnRepo {
	return &fakeVulnRepo{docs: make(map[string]*vulnerability.Vulnerability)}
}

func (f *fakeVulnRepo) add(v *vulnerability.Vulnerability) *vulnerability.Vulnerability {
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	f.docs[v.ID.Hex()] = v
	return v
}

func (f *fakeVulnRepo) Get(ctx context.Context, orgID int64, id primitive.ObjectID) (*vulnerability.Vulnerability, error) {
	if v, ok := f.docs[id.Hex()]; ok {
		return v, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeVulnRepo) Save(ctx context.Context, orgID int64, v *vulnerability.Vulnerability) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.docs[v.ID.Hex()] = v
	return nil
}

func (f *fakeVulnRepo) List(ctx context.Context, orgID int64, filter vulnerability.ListFilter) ([]*vulnerability.Vulnerability, error) {
	var out []*vulnerability.Vulnerability
	for _, v := range f.docs {
		if !filter.IncludeDeleted && v.IsDeleted {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeVulnRepo) FindForAction(ctx context.Context, orgID int64, filter vulnerability.ActionFilter) ([]*vulnerability.Vulnerability, error) {
	var out []*vulnerability.Vulnerability
	for _, v := range f.docs {
		if v.IsDeleted {
			continue
		}
		if len(filter.PluginIDs) > 0 && !containsString(filter.PluginIDs, v.PluginID) {
			continue
		}
		if len(filter.Targets) > 0 && !containsString(filter.Targets, v.Target) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (f *fakeVulnRepo) Lock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error) {
	var matched int64
	now := time.Now()
	for _, id := range ids {
		v, ok := f.docs[id.Hex()]
		if !ok {
			continue
		}
		if v.Locked == nil || v.Locked.UserID == userID {
			v.Locked = &vulnerability.Lock{UserID: userID, LockedAt: now}
			matched++
		}
	}
	return matched, nil
}

func (f *fakeVulnRepo) Unlock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error) {
	var matched int64
	for _, id := range ids {
		v, ok := f.docs[id.Hex()]
		if !ok {
			continue
		}
		if v.Locked != nil && v.Locked.UserID == userID {
			v.Locked = nil
			matched++
		}
	}
	return matched, nil
}

func (f *fakeVulnRepo) UpsertFromRemote(ctx context.Context, orgID int64, vulns []*vulnerability.Vulnerability) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(vulns))
	for _, v := range vulns {
		key := v.PluginID + "/" + v.Target + "/" + v.PortProtocol + "/" + v.TenableScanID
		var existing *vulnerability.Vulnerability
		for _, doc := range f.docs {
			if doc.PluginID+"/"+doc.Target+"/"+doc.PortProtocol+"/"+doc.TenableScanID == key {
				existing = doc
				break
			}
		}
		if existing != nil {
			existing.Count = v.Count
			existing.LastSeen = v.LastSeen
			ids = append(ids, existing.ID)
			continue
		}
		ids = append(ids, f.add(v).ID)
	}
	return ids, nil
}

type fakeInventoryRepo struct {
	scores map[string]float64
	err    error
}

func (f *fakeInventoryRepo) RiskScoresByIP(ctx context.Context, orgID int64, ips []string) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, ip := range ips {
		if score, ok := f.scores[ip]; ok {
			out[ip] = score
		}
	}
	return out, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

var (
	_ tenant.Repository        = (*fakeTenantRepo)(nil)
	_ scan.Repository          = (*fakeScanRepo)(nil)
	_ job.Repository           = (*fakeJobQueue)(nil)
	_ report.Repository        = (*fakeReportRepo)(nil)
	_ vulnerability.Repository = (*fakeVulnRepo)(nil)
	_ inventory.Repository     = (*fakeInventoryRepo)(nil)
)

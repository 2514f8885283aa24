package plans

import (
    "context"
    "errors"
    "time"

    "routeops/internal/model"
    "routeops/internal/store"
)

// Approve finalizes the draft for a key: it exports the full ordered
// route/stop set through the storage collaborator and records the artifact
// locations. Re-approving an already-approved key regenerates the artifacts
// and overwrites the record in place; there is never a second record per
// key. On export failure nothing is written, so approval either fully
// succeeds or leaves prior state intact.
func (s *Service) Approve(ctx context.Context, key model.PlanKey) (model.ApprovalRecord, error) {
    plan, err := s.store.GetPlan(ctx, key)
    if errors.Is(err, store.ErrNotFound) {
        return model.ApprovalRecord{}, ErrPlanNotFound
    }
    if err != nil {
        return model.ApprovalRecord{}, err
    }
    if len(plan.Routes) == 0 {
        return model.ApprovalRecord{}, ErrEmptyPlan
    }

    // Export runs on the snapshot, outside the key lock: a slow upload must
    // not block concurrent edits.
    res, err := s.exp.Export(ctx, plan)
    if err != nil {
        return model.ApprovalRecord{}, err
    }

    rec := model.ApprovalRecord{
        Key:        key,
        ApprovedAt: time.Now().UTC().Format(time.RFC3339),
        Artifacts: model.ExportArtifacts{
            SpreadsheetURL:  res.SpreadsheetURL,
            SpreadsheetName: res.SpreadsheetName,
            ManifestURL:     res.ManifestURL,
            ManifestName:    res.ManifestName,
        },
    }

    lk := s.keyLock(key)
    lk.Lock()
    defer lk.Unlock()
    if err := s.store.SaveApproval(ctx, rec); err != nil {
        return model.ApprovalRecord{}, err
    }
    return rec, nil
}

// Package harvest implements the paginated harvest-and-reconcile pipeline.
//
// A run walks region × year partitions. For each partition the pipeline:
//
//  1. enumerates the discover pages (Enumerator),
//  2. fetches every page with bounded concurrency and persists each page
//     artifact (Coordinator),
//  3. records pages that failed in the partition's MissingPages set,
//  4. re-attempts the missing pages once (Reconciler),
//  5. merges, deduplicates and sorts the page artifacts, but only when no
//     page is missing (MergeEngine),
//  6. hands the merged artifact to the configured publishers.
//
// Page failures never escalate to the partition, and partition failures never
// abort the run. Every outcome ends up in the RunReport.
//
// Example usage:
//
//	p := harvest.NewPipeline(svc, store, store, harvest.DefaultOptions(), mirror)
//	report, err := p.Run(ctx, harvest.RunRequest{Region: "US", YearStart: 1999, YearEnd: 2001})
package harvest

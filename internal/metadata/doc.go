// Package metadata turns the progress store's segment records into the
// exported dataset tables and the speaker-disjoint train/dev/test split.
//
// Export runs once per batch over the whole corpus: speakers are collected
// from every record, shuffled under a fixed seed and partitioned into three
// contiguous blocks, so a speaker never appears in two splits. Tables are
// written as metadata_all, metadata_train, metadata_dev and metadata_test in
// CSV or Parquet.
package metadata

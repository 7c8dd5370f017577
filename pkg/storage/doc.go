// Package storage persists harvest artifacts as parquet objects on a
// gocloud blob bucket.
//
// Layout, relative to the bucket root:
//
//	US_movie_data_1999/US_movie_data_1999-1.parquet       page 1
//	US_movie_data_1999/US_movie_data_1999-2.parquet       page 2
//	US_movie_data_1999/US_movie_data_1999-merged.parquet  merged
//
// Writes go through blob writers that commit on Close, so a failed write never
// leaves a partial object behind. Rewriting a key overwrites it.
//
// The Mirror copies merged artifacts to a second bucket (azblob, s3, gs, file
// or mem URLs) under {prefix}{region}_movie_data/.
package storage

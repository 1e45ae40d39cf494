// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package pipeline orchestrates document processing.
//
// A submitted file moves through extraction, classification, entity
// extraction, chunking, embedding, and vector storage. Jobs run on a
// worker pool; each stage is retried with exponential backoff on
// transient failures, and its results are persisted before the next
// stage begins, so an interrupted job resumes from its last durable
// stage instead of starting over.
//
// Duplicate submissions of the same content attach to the existing job.
// Cancellation takes effect at stage boundaries. On a terminal outcome
// the source file is moved to a processed or failed directory.
package pipeline

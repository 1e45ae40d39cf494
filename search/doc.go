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


// Package search provides hybrid semantic and keyword search over
// document chunks.
//
// The Searcher type combines two signals:
//   - Semantic similarity from chunk embeddings in the vector store
//   - Verbatim keyword matching with stop-word filtering
//
// Each hit's score is a weighted blend of the two signals; ties are
// broken by preferring chunks from more recently updated documents.
package search

// Package jobtypes registers the concrete job types and the branch operators
// that chain them.
//
//	extract_archive ──loop──▶ preprocess_document ──switch(doc_type=text)──▶ classify_documents
//
// preprocess_document runs the media pipeline for one file on the cpu lane,
// extract_archive unpacks a zip into the staging area on the cpu lane, and
// classify_documents labels a batch of documents on the api lane, recording a
// tracker row per document so a re-run only touches the unfinished ones.
package jobtypes

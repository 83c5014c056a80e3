// Package skills loads reusable markdown context ("skills") from disk.
//
// Each *.md file is one skill. An optional YAML front matter block sets the
// name, version, summary and tags:
//
//	---
//	name: haiku
//	version: 1.2.0
//	tags: [style]
//	---
//	# Answer in haiku
//	Reply using three lines of 5, 7 and 5 syllables.
//
// The name defaults to the file stem, the version to 0.1.0 and the summary to
// the first markdown heading. Registry.Context resolves skill names to their
// latest versions and joins the bodies for injection ahead of a user turn.
package skills

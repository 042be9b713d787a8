// Package config defines configuration structures for the dars CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (DARS_ prefix, optionally from a .env file)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # Example
//
//	base_url: https://soi.example.com/search
//	url_prefix_substitution:
//	  - from: http://internal:8080
//	    to: https://archive.example.com
//	download_dir: downloads
//	bucket: s3://archives?region=eu-north-1
//	object_store_prefix: soi
//	workers: 4
//	request_timeout: 60s
//	retry:
//	  attempts: 5
//	  delay: 5s
package config

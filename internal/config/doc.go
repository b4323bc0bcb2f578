/*
Package config loads DriveFS settings from defaults, a YAML file and the
environment.

Sources are applied in order, each overriding the previous one:

	┌─────────────────────────────────────────────┐
	│          Command-line flags                 │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (DRIVEFS_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Example

	global:
	  log_level: INFO
	  log_format: json
	  metrics_port: 9100

	remote:
	  backend: gdocs            # or s3
	  base_url: https://docs.google.com
	  timeout: 30s
	  refresh_interval: 10m

	s3:
	  bucket: team-docs
	  region: us-east-1
	  endpoint: http://localhost:9000
	  use_path_style: true

	mount:
	  allow_other: false
	  single_threaded: true
	  attr_timeout: 1s
	  entry_timeout: 1s

# Environment Variables

	DRIVEFS_LOG_LEVEL          global.log_level
	DRIVEFS_LOG_FILE           global.log_file
	DRIVEFS_METRICS_PORT       global.metrics_port
	DRIVEFS_BACKEND            remote.backend
	DRIVEFS_BASE_URL           remote.base_url
	DRIVEFS_TIMEOUT            remote.timeout
	DRIVEFS_REFRESH_INTERVAL   remote.refresh_interval
	DRIVEFS_S3_BUCKET          s3.bucket
	DRIVEFS_S3_REGION          s3.region
	DRIVEFS_S3_ENDPOINT        s3.endpoint
	DRIVEFS_ALLOW_OTHER        mount.allow_other
	DRIVEFS_DEBUG              mount.debug

Durations use Go duration syntax ("30s", "10m"). A malformed numeric or
duration variable is an error rather than being ignored.
*/
package config

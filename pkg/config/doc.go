/*
Package config loads the herald daemon configuration.

Configuration comes from a YAML file (herald.yaml in the working directory
or /etc/herald, or the path given with --config), with HERALD_ environment
variables overriding any key. Nested keys join with underscores:

	address: 1.1.2.1
	listen: 0.0.0.0:3794
	peers:
	  - address: 2.1.1.1
	    endpoint: 10.0.0.2:3794
	timing:
	  peer_timeout: 5s

	HERALD_TIMING_PEER_TIMEOUT=10s herald serve

Load validates the result and reports every problem at once as
ValidationErrors. Write produces a file Load accepts, which is how
"herald config init" creates a starting point.
*/
package config

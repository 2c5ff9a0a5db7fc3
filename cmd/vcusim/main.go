// Command vcusim runs the VCU CAN mailbox core against a loopback or
// SocketCAN bus and inspects recorded traffic.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

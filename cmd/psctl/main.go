// psctl sends one control packet to a running bridge and prints the
// decoded response.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"psbridge/internal/udpwire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:16665", "bridge control address")
	set := flag.Bool("set", false, "apply the setpoints")
	current := flag.Float64("i", 0.0, "current setpoint [A]")
	voltage := flag.Float64("v", 0.0, "voltage setpoint [V]")
	timeout := flag.Duration("timeout", 2*time.Second, "reply timeout")
	flag.Parse()

	if err := run(*addr, *set, *current, *voltage, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "psctl: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, set bool, current, voltage float64, timeout time.Duration) error {
	pkt := udpwire.ControlPacket{
		Magic:           udpwire.ControlMagic,
		CurrentSetpoint: udpwire.Micro(current),
		VoltageSetpoint: udpwire.Micro(voltage),
	}
	if set {
		pkt.Set = 1
	}

	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(udpwire.EncodeControl(pkt)); err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	if n < udpwire.FrameOverhead+udpwire.ResponseSize {
		return fmt.Errorf("short reply: %d bytes", n)
	}

	// The reply payload embeds its own IP+UDP headers; skip them.
	resp, err := udpwire.DecodeResponse(buf[udpwire.FrameOverhead : udpwire.FrameOverhead+udpwire.ResponseSize])
	if err != nil {
		return err
	}

	fmt.Printf("status           = 0x%08X\n", resp.Status)
	fmt.Printf("current setpoint = %f A\n", udpwire.Native(resp.CurrentSetpoint))
	fmt.Printf("voltage setpoint = %f V\n", udpwire.Native(resp.VoltageSetpoint))
	fmt.Printf("current readback = %f A\n", udpwire.Native(resp.CurrentReadback))
	fmt.Printf("voltage readback = %f V\n", udpwire.Native(resp.VoltageReadback))
	return nil
}

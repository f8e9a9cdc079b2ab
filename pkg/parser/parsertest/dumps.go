// Package parsertest 提供测试用的线程 dump 样本
package parsertest

import (
	"testing"

	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/stretchr/testify/require"
)

// TomcatDump 五个线程: 两个 RUNNABLE，三个在 Object.wait() 上 WAITING
const TomcatDump = `
2013-05-02 10:12:01
Full thread dump Java HotSpot(TM) Server VM (20.1-b02 mixed mode):

"Attach Listener" daemon prio=10 tid=0x51a6b000 nid=0x118e runnable [0x00000000]
    java.lang.Thread.State: RUNNABLE

    Locked ownable synchronizers:
                - None

"http-0.0.0.0-8080-6" daemon prio=10 tid=0x0bab5c00 nid=0xd73 in Object.wait() [0x4e5f5000]
    java.lang.Thread.State: WAITING (on object monitor)
                at java.lang.Object.wait(Native Method)
                at java.lang.Object.wait(Object.java:485)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.await(JIoEndpoint.java:415)
                - locked <0x67648fe8> (a org.apache.tomcat.util.net.JIoEndpoint$Worker)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.run(JIoEndpoint.java:441)
                at java.lang.Thread.run(Thread.java:662)

    Locked ownable synchronizers:
                - None

"http-0.0.0.0-8080-5" daemon prio=10 tid=0x0a82d000 nid=0xd72 in Object.wait() [0x4e646000]
    java.lang.Thread.State: WAITING (on object monitor)
                at java.lang.Object.wait(Native Method)
                at java.lang.Object.wait(Object.java:485)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.await(JIoEndpoint.java:415)
                - locked <0x6764b158> (a org.apache.tomcat.util.net.JIoEndpoint$Worker)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.run(JIoEndpoint.java:441)
                at java.lang.Thread.run(Thread.java:662)

    Locked ownable synchronizers:
                - None

"http-0.0.0.0-8080-4" daemon prio=10 tid=0x0a82bc00 nid=0xd71 in Object.wait() [0x4e697000]
    java.lang.Thread.State: WAITING (on object monitor)
                at java.lang.Object.wait(Native Method)
                at java.lang.Object.wait(Object.java:485)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.await(JIoEndpoint.java:415)
                - locked <0x6764d2c8> (a org.apache.tomcat.util.net.JIoEndpoint$Worker)
                at org.apache.tomcat.util.net.JIoEndpoint$Worker.run(JIoEndpoint.java:441)
                at java.lang.Thread.run(Thread.java:662)

    Locked ownable synchronizers:
                - None

"JBoss System Threads(1)-1" daemon prio=10 tid=0x09a28400 nid=0x7ec runnable [0x521ad000]
     java.lang.Thread.State: RUNNABLE
                at java.net.PlainSocketImpl.socketAccept(Native Method)
                at java.net.PlainSocketImpl.accept(PlainSocketImpl.java:390)
                - locked <0x6397c1e0> (a java.net.SocksSocketImpl)
                at java.net.ServerSocket.implAccept(ServerSocket.java:462)
                at java.net.ServerSocket.accept(ServerSocket.java:430)
                at org.jboss.web.WebServer.run(WebServer.java:320)
                at org.jboss.util.threadpool.RunnableTaskWrapper.run(RunnableTaskWrapper.java:148)
                at EDU.oswego.cs.dl.util.concurrent.PooledExecutor$Worker.run(PooledExecutor.java:756)
                at java.lang.Thread.run(Thread.java:662)

     Locked ownable synchronizers:
                - None


`

// WaitFrame TomcatDump 中三个 WAITING 线程共有的栈顶帧
const WaitFrame = "java.lang.Object.wait(Native Method)"

// ModernDump JDK 17 风格的 dump，包含 BLOCKED 线程、递归帧与 main 线程
const ModernDump = `2024-03-11 09:30:00
Full thread dump OpenJDK 64-Bit Server VM (17.0.9+9 mixed mode, sharing):

Threads class SMR info:
_java_thread_list=0x00007f2c64001f80, length=4, elements={
0x00007f2c9c02a800, 0x00007f2c9c0e6000
}

"main" #1 prio=5 os_prio=0 cpu=1204.33ms elapsed=93.21s tid=0x00007f2c9c02a800 nid=0x1a03 waiting on condition  [0x00007f2ca3dfe000]
   java.lang.Thread.State: TIMED_WAITING (sleeping)
	at java.lang.Thread.sleep(java.base@17.0.9/Native Method)
	at com.example.shop.Main.main(Main.java:42)

"Reference Handler" #2 daemon prio=10 os_prio=0 cpu=0.31ms elapsed=93.19s tid=0x00007f2c9c0e6000 nid=0x1a0a waiting on condition  [0x00007f2c7c2fe000]
   java.lang.Thread.State: RUNNABLE
	at java.lang.ref.Reference.waitForReferencePendingList(java.base@17.0.9/Native Method)
	at java.lang.ref.Reference.processPendingReferences(java.base@17.0.9/Reference.java:253)
	at java.lang.ref.Reference$ReferenceHandler.run(java.base@17.0.9/Reference.java:215)

"worker-1" #21 prio=5 os_prio=0 cpu=88.10ms elapsed=90.02s tid=0x00007f2c9c3c1000 nid=0x1a40 waiting for monitor entry  [0x00007f2c4d1fe000]
   java.lang.Thread.State: BLOCKED (on object monitor)
	at com.example.shop.Inventory.reserve(Inventory.java:77)
	- waiting to lock <0x000000062a9e8b10> (a com.example.shop.Inventory)
	at com.example.shop.Inventory.reserve(Inventory.java:70)
	at com.example.shop.OrderService.place(OrderService.java:31)
	at java.util.concurrent.ThreadPoolExecutor.runWorker(java.base@17.0.9/ThreadPoolExecutor.java:1136)
	at java.lang.Thread.run(java.base@17.0.9/Thread.java:840)

"worker-2" #22 prio=5 os_prio=0 cpu=91.55ms elapsed=90.02s tid=0x00007f2c9c3c2800 nid=0x1a41 waiting for monitor entry  [0x00007f2c4d0fe000]
   java.lang.Thread.State: BLOCKED (on object monitor)
	at com.example.shop.Inventory.reserve(Inventory.java:77)
	- waiting to lock <0x000000062a9e8b10> (a com.example.shop.Inventory)
	at com.example.shop.Inventory.reserve(Inventory.java:70)
	at com.example.shop.OrderService.place(OrderService.java:31)
	at java.util.concurrent.ThreadPoolExecutor.runWorker(java.base@17.0.9/ThreadPoolExecutor.java:1136)
	at java.lang.Thread.run(java.base@17.0.9/Thread.java:840)

"VM Thread" os_prio=0 cpu=12.01ms elapsed=93.20s tid=0x00007f2c9c0d9000 nid=0x1a09 runnable

JNI global refs: 15, weak refs: 0
`

// MustParse 解析 dump，失败时终止测试
func MustParse(t testing.TB, text string) *parser.Snapshot {
	t.Helper()
	snap, err := parser.Parse(text)
	require.NoError(t, err)
	return snap
}

/*
Package retry 提供带指数退避与抖动的有界重试器。

tracker 用它重试瞬时的状态查询失败（网络错误、上游 5xx/429），
重试耗尽或遇到永久错误时返回最后一次错误，由调用方决定如何上报。
*/
package retry
